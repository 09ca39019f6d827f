package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file and fills in defaults", func() {
			data := `version = 0

[notes]
ref = "refs/notes/custom"

[events]
kafka_brokers = "k1:9092, k2:9092"
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Notes.Ref).To(Equal("refs/notes/custom"))
			Expect(cfg.Events.Brokers()).To(Equal([]string{"k1:9092", "k2:9092"}))

			defaults := config.NewDefaultConfig()
			Expect(cfg.Git).To(Equal(defaults.Git))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
			Expect(cfg.Events.KafkaTopic).To(Equal(defaults.Events.KafkaTopic))
		})

		It("returns error for malformed TOML", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[notes\nref ="), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})

		It("returns error for unsupported config version", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = 99\n"), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 99")))
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.SQLitePath = "/tmp/traces.db"
			Expect(c.SaveConfig(cfg)).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`sqlite_path = "/tmp/traces.db"`))
			Expect(string(data)).To(ContainSubstring(`ref = "refs/notes/agent-trace"`))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		It("round-trips a string key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("api.listen", ":9999")).To(Succeed())
			Expect(c.GetConfigValue("api.listen")).To(Equal(":9999"))
		})

		It("validates durations", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("git.timeout", "soon")).To(MatchError(ContainSubstring("invalid value for git.timeout")))
			Expect(c.SetConfigValue("git.timeout", "5s")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Git.TimeoutDuration()).To(Equal(5 * time.Second))
		})

		It("rejects an empty notes ref", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SetConfigValue("notes.ref", "")).To(HaveOccurred())
		})

		It("preserves existing values when setting a new key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("tool.name", "cursor")).To(Succeed())
			Expect(c.SetConfigValue("events.kafka_topic", "traces")).To(Succeed())

			Expect(c.GetConfigValue("tool.name")).To(Equal("cursor"))
			Expect(c.GetConfigValue("events.kafka_topic")).To(Equal("traces"))
		})

		It("returns defaults and empty values when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.GetConfigValue("notes.ref")).To(Equal("refs/notes/agent-trace"))
			Expect(c.GetConfigValue("storage.sqlite_path")).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("proxy.listen", ":1")).To(MatchError(ContainSubstring("unknown config key")))
			_, err = c.GetConfigValue("proxy.listen")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})
	})

	Describe("ValidConfigKeys", func() {
		It("returns every key in section order", func() {
			Expect(config.ValidConfigKeys()).To(Equal([]string{
				"notes.ref",
				"staging.path",
				"git.binary",
				"git.timeout",
				"api.listen",
				"storage.sqlite_path",
				"events.kafka_brokers",
				"events.kafka_topic",
				"tool.name",
				"tool.version",
			}))
		})

		It("agrees with IsValidConfigKey", func() {
			for _, k := range config.ValidConfigKeys() {
				Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
			}
			Expect(config.IsValidConfigKey("notes")).To(BeFalse())
			Expect(config.IsValidConfigKey("ref")).To(BeFalse())
		})
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Notes.Ref).To(BeEmpty())
	})
})

var _ = Describe("EventsConfig", func() {
	It("ignores blank broker entries", func() {
		Expect(config.EventsConfig{KafkaBrokers: " , a:1,,b:2 "}.Brokers()).To(Equal([]string{"a:1", "b:2"}))
		Expect(config.EventsConfig{}.Brokers()).To(BeEmpty())
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.FromViper(v)).To(Equal(config.NewDefaultConfig()))
	})

	It("reads config file values over defaults", func() {
		data := `[git]
timeout = "1m"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetDuration("git.timeout")).To(Equal(time.Minute))
		Expect(v.GetString("git.binary")).To(Equal("git"))
	})

	It("env vars take precedence over config file values", func() {
		data := `[notes]
ref = "refs/notes/from-file"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("TRACENOTES_NOTES_REF", "refs/notes/from-env")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("notes.ref")).To(Equal("refs/notes/from-env"))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen})
		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":5555\"\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen, "nonexistent"})
		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("AddStringFlag pulls name, shorthand, and default from the registry", func() {
		cmd := &cobra.Command{Use: "test"}
		var sqlitePath, ref string
		config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &sqlitePath)
		config.AddPersistentStringFlag(cmd, config.Flags, config.FlagRef, &ref)

		f := cmd.Flags().Lookup("sqlite")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("s"))

		p := cmd.PersistentFlags().Lookup("ref")
		Expect(p).NotTo(BeNil())
		Expect(p.DefValue).To(Equal("refs/notes/agent-trace"))
	})
})
