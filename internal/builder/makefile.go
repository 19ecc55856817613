package builder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/riotam/internal/utils"
)

// WriteMakefile writes a RIOT application Makefile selecting modules to path.
// The application directory must be two levels below the RIOT root.
func WriteMakefile(path, app, board string, modules []string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "APPLICATION = %s\n\n", app)
	fmt.Fprintf(&b, "BOARD ?= %s\n\n", board)
	b.WriteString("RIOTBASE ?= $(CURDIR)/../..\n\n")

	for _, m := range modules {
		fmt.Fprintf(&b, "USEMODULE += %s\n", m)
	}

	b.WriteString("\ninclude $(RIOTBASE)/Makefile.include\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write Makefile: %w", err)
	}

	return nil
}

// ReplaceApplicationName rewrites the APPLICATION assignment of the Makefile
// at path. The previous Makefile is kept as Makefile.old.
func ReplaceApplicationName(path, name string) error {
	old := path + ".old"
	if err := utils.CopyFile(path, old); err != nil {
		return fmt.Errorf("failed to back up Makefile: %w", err)
	}

	data, err := os.ReadFile(old)
	if err != nil {
		return fmt.Errorf("failed to read Makefile: %w", err)
	}

	lines := strings.SplitAfter(string(data), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ReplaceAll(line, " ", ""), "APPLICATION=") {
			lines[i] = "APPLICATION = " + name + "\n"
		}
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "")), 0o644); err != nil {
		return fmt.Errorf("failed to write Makefile: %w", err)
	}

	return nil
}

// ModulesFromMakefile returns the modules selected by USEMODULE assignments
// of the Makefile in dir, in file order
func ModulesFromMakefile(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, "Makefile"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var modules []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}

		// "USEMODULE +=" leaves "USEMODULE +" in front of the "="
		if strings.TrimSpace(strings.TrimRight(strings.TrimSpace(key), "+?:")) != "USEMODULE" {
			continue
		}

		modules = append(modules, strings.Fields(value)...)
	}

	return modules, scanner.Err()
}
