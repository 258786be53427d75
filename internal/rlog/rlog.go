// Package rlog is a thin wrapper around the standard log package: a
// short "pkg: message key=value ..." line, written with log.Printf,
// nothing more elaborate.
package rlog

import "log"

// Printf logs tag-prefixed at the default logger, e.g.
// rlog.Printf("sock", "read fd=%d n=%d err=%v", fd, n, err).
func Printf(tag, format string, args ...any) {
	log.Printf(tag+": "+format, args...)
}

// Println logs tag-prefixed with space-separated args, e.g.
// rlog.Println("server", "conn open", addr).
func Println(tag string, args ...any) {
	line := append([]any{tag + ":"}, args...)
	log.Println(line...)
}
