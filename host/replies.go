package host

import "fmt"

func pingAcked(host int) string {
	return fmt.Sprintf("Ping acked by host %d", host)
}

func pingTimedOut(host int) string {
	return fmt.Sprintf("Ping to host %d timed out", host)
}

func pingInProgress(host int) string {
	return fmt.Sprintf("Ping to host %d already in progress", host)
}
