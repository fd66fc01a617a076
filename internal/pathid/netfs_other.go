//go:build !linux

package pathid

func isNetworkFS(string) bool { return false }
