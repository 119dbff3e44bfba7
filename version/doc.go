// Package version reports build information for the medallion binary.
package version
