// Package logging builds the zap logger shared by every gatekeep component and
// keeps a bounded tail of recent lines for the admin interface.
package logging
