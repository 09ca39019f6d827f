// Package utils holds small helpers shared across tracenotes packages that
// do not warrant a package of their own.
package utils

// Build metadata, stamped at release time with -ldflags -X.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// ShortVersion returns Version followed by the abbreviated build commit, or
// just Version for unstamped builds.
func ShortVersion() string {
	if Sha == "" || Sha == "HEAD" {
		return Version
	}
	return Version + " (" + ShortSHA(Sha) + ")"
}
