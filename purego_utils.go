//go:build darwin || linux

// Shared utilities for the purego codec bindings.

package transcoder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) == 0 {
			break
		}
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// findModuleRoot walks up from the working directory to the directory
// containing go.mod.
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// findSourceRoot returns the directory of this source file, which is the
// module root when running from a checkout (tests, go run).
func findSourceRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}

// nativeLibName returns the platform file name of a shared library.
func nativeLibName(base string) string {
	if runtime.GOOS == "darwin" {
		return base + ".dylib"
	}
	return base + ".so"
}

// nativeLibPaths lists the candidate locations of a shared library, in
// lookup order: fileEnv (a full path), dirEnv (a directory), next to the
// executable, the build directory of the module, then system paths.
func nativeLibPaths(base, fileEnv, dirEnv string) []string {
	libName := nativeLibName(base)
	var paths []string

	if envPath := os.Getenv(fileEnv); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv(dirEnv); envPath != "" {
		paths = append(paths, filepath.Join(envPath, libName))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	for _, root := range []string{findModuleRoot(), findSourceRoot()} {
		if root != "" {
			paths = append(paths,
				filepath.Join(root, "build", libName),
				filepath.Join(root, "build", "ffi", libName),
			)
		}
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/opt/homebrew/lib", libName),
		)
	case "linux":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/usr/lib", libName),
		)
	}
	return paths
}

// openNativeLib opens the first loadable candidate and binds its symbols.
func openNativeLib(base string, paths []string, bind func(handle uintptr) error) (uintptr, error) {
	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := bindSymbols(handle, bind); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		return handle, nil
	}
	if lastErr != nil {
		return 0, fmt.Errorf("failed to load %s: %w", base, lastErr)
	}
	return 0, errors.New(base + " not found in any standard location")
}

// bindSymbols turns a missing symbol, which purego reports by panicking,
// into an error.
func bindSymbols(handle uintptr, bind func(handle uintptr) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bind symbols: %v", r)
		}
	}()
	return bind(handle)
}
