// Команда guardctl — консольный клиент к локальному API демона crisisguard.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "guardctl:", err)
		os.Exit(1)
	}
}
