//go:build windows

package main

import "os"

// Windows has no user signals; visibility is driven through the facade.
func notifyVisibility(ch chan<- os.Signal) bool { return false }

func isHideSignal(sig os.Signal) bool { return false }
