package sqlitepath

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResolveSQLitePath", func() {
	var stateDir string

	BeforeEach(func() {
		stateDir = GinkgoT().TempDir()
		GinkgoT().Setenv("XDG_DATA_HOME", "")
	})

	It("prefers an explicit path", func() {
		Expect(ResolveSQLitePath("/tmp/custom.db", stateDir)).To(Equal("/tmp/custom.db"))
	})

	It("defaults to traces.db in the state directory", func() {
		Expect(ResolveSQLitePath("  ", stateDir)).To(Equal(filepath.Join(stateDir, "traces.db")))
	})

	It("finds an existing traces.sqlite", func() {
		existing := filepath.Join(stateDir, "traces.sqlite")
		Expect(os.WriteFile(existing, nil, 0o600)).To(Succeed())

		Expect(ResolveSQLitePath("", stateDir)).To(Equal(existing))
	})

	It("falls back to XDG_DATA_HOME when the mirror lives there", func() {
		xdg := GinkgoT().TempDir()
		GinkgoT().Setenv("XDG_DATA_HOME", xdg)
		existing := filepath.Join(xdg, "tracenotes", "traces.db")
		Expect(os.MkdirAll(filepath.Dir(existing), 0o755)).To(Succeed())
		Expect(os.WriteFile(existing, nil, 0o600)).To(Succeed())

		Expect(ResolveSQLitePath("", stateDir)).To(Equal(existing))
	})
})
