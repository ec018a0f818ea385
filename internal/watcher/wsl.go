package watcher

import (
	"os"
	"strings"
)

// procVersion is read to tell a WSL kernel apart from a native one
var procVersion = "/proc/version"

func runningUnderWSL() bool {
	data, err := os.ReadFile(procVersion)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// onDrvFs reports whether path is below a Windows drive mount such as /mnt/c
func onDrvFs(path string) bool {
	rest, ok := strings.CutPrefix(path, "/mnt/")
	if !ok || rest == "" {
		return false
	}
	drive, _, _ := strings.Cut(rest, "/")
	return len(drive) == 1 && ('a' <= drive[0] && drive[0] <= 'z' || 'A' <= drive[0] && drive[0] <= 'Z')
}

// warnIfDrvFs logs when root sits on a mount where inotify misses changes
// made from the Windows side
func (fw *FileWatcher) warnIfDrvFs(root string) {
	if onDrvFs(root) && runningUnderWSL() {
		fw.logger.Warn("watching a Windows drive under WSL, changes made from Windows may not be reported", "path", root)
	}
}
