package opener

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Command returns the program and arguments that open path with the default
// application on goos.
func Command(goos, path string) (string, []string, error) {
	switch goos {
	case "windows":
		// The empty argument is the window title, required when path is quoted.
		return "cmd", []string{"/c", "start", "", path}, nil
	case "darwin":
		return "open", []string{path}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{path}, nil
	}
	return "", nil, fmt.Errorf("unsupported operating system: %s", goos)
}

// Open opens a file or URL using the default application for the current OS.
// It waits for the launcher, not for the viewer it starts.
func Open(path string) error {
	name, args, err := Command(runtime.GOOS, path)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Run()
}
