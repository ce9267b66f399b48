// Package diag provides bracket-tagged diagnostic printing, matching
// the teacher's "[DEBUG]"/"[WARNING]" fmt.Printf convention instead of
// introducing a structured logging dependency the source pack never
// reaches for in this kind of tool.
package diag

import "fmt"

func Debugf(format string, args ...interface{}) {
	fmt.Printf("[DEBUG] "+format+"\n", args...)
}

func Warnf(format string, args ...interface{}) {
	fmt.Printf("[WARNING] "+format+"\n", args...)
}

func Infof(format string, args ...interface{}) {
	fmt.Printf("[INFO] "+format+"\n", args...)
}

func Errorf(format string, args ...interface{}) {
	fmt.Printf("[ERROR] "+format+"\n", args...)
}
