//go:build !linux

package sdnotify

func Ready()            {}
func Stopping()         {}
func Status(msg string) {}
