//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

func notifyVisibility(ch chan<- os.Signal) bool {
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	return true
}

func isHideSignal(sig os.Signal) bool {
	return sig == syscall.SIGUSR1
}
