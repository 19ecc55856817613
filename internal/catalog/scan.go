package catalog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultFlashProgram is recorded for every scanned board
const DefaultFlashProgram = "openocd"

// Scanner reads modules, boards and applications out of a RIOT checkout
type Scanner struct {
	RiotDir                string
	ModuleDirectories      []string
	ApplicationDirectories []string
	BoardDisplayNames      map[string]string
	Logger                 zerolog.Logger
}

// Update rescans the tree and replaces every catalog table
func (s *Scanner) Update(ctx context.Context, store Store) error {
	modules, err := s.Modules()
	if err != nil {
		return err
	}
	if err := store.ReplaceModules(ctx, modules); err != nil {
		return err
	}
	s.Logger.Info().Int("count", len(modules)).Msg("Updated modules")

	boards, err := s.Boards()
	if err != nil {
		return err
	}
	if err := store.ReplaceBoards(ctx, boards); err != nil {
		return err
	}
	s.Logger.Info().Int("count", len(boards)).Msg("Updated boards")

	apps, err := s.Applications()
	if err != nil {
		return err
	}
	if err := store.ReplaceApplications(ctx, apps); err != nil {
		return err
	}
	s.Logger.Info().Int("count", len(apps)).Msg("Updated applications")

	return nil
}

// Modules lists every module directory under the configured module directories
func (s *Scanner) Modules() ([]Module, error) {
	var modules []Module

	for _, group := range s.ModuleDirectories {
		err := s.eachComponent(group, func(rel, name, desc string) {
			modules = append(modules, Module{Name: name, Path: rel, Description: desc, Group: group})
		})
		if err != nil {
			return nil, err
		}
	}

	return modules, nil
}

// Applications lists every application under the configured application directories
func (s *Scanner) Applications() ([]Application, error) {
	var apps []Application

	for _, group := range s.ApplicationDirectories {
		err := s.eachComponent(group, func(rel, name, desc string) {
			apps = append(apps, Application{Name: name, Path: rel, Description: desc, Group: group})
		})
		if err != nil {
			return nil, err
		}
	}

	return apps, nil
}

// Boards lists the board directories, skipping shared and native ones
func (s *Scanner) Boards() ([]Board, error) {
	entries, err := os.ReadDir(filepath.Join(s.RiotDir, "boards"))
	if err != nil {
		return nil, fmt.Errorf("failed to read boards: %w", err)
	}

	var boards []Board
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || name == "common" || name == "native" || strings.HasSuffix(name, "-common") {
			continue
		}

		display := name
		if d, ok := s.BoardDisplayNames[name]; ok && d != "" {
			display = d
		}

		boards = append(boards, Board{
			DisplayName:  display,
			InternalName: name,
			FlashProgram: DefaultFlashProgram,
		})
	}

	return boards, nil
}

func (s *Scanner) eachComponent(group string, fn func(rel, name, desc string)) error {
	base := filepath.Join(s.RiotDir, group)

	entries, err := os.ReadDir(base)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", group, err)
	}

	for _, e := range entries {
		if !e.IsDir() || e.Name() == "include" {
			continue
		}

		dir := e.Name()
		name := ComponentName(filepath.Join(base, dir), dir)
		desc := Description(base, dir)

		s.Logger.Debug().Str("group", group).Str("name", name).Msg("Found component")
		fn(filepath.ToSlash(filepath.Join(group, dir)), name, desc)
	}

	return nil
}

// ComponentName returns the APPLICATION or PKG_NAME value from the first
// Makefile line that sets one, falling back to fallback
func ComponentName(dir, fallback string) string {
	f, err := os.Open(filepath.Join(dir, "Makefile"))
	if err != nil {
		return fallback
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), " ", "")

		for _, key := range []string{"APPLICATION=", "PKG_NAME="} {
			if i := strings.Index(line, key); i >= 0 {
				if name := strings.TrimSpace(line[i+len(key):]); name != "" {
					return name
				}
				return fallback
			}
		}
	}

	return fallback
}

// Description looks for a @brief block describing the component named
// name inside base
func Description(base, name string) string {
	candidates := []string{
		filepath.Join(base, "include", name+".h"),
		filepath.Join(base, name, "doc.txt"),
		filepath.Join(base, name, name+".c"),
		filepath.Join(base, name, "main.c"),
	}

	for _, path := range candidates {
		if desc := briefFrom(path); desc != "" {
			return desc
		}
	}

	return ""
}

// briefFrom collects the @brief text of the first documented block in path.
// Continuation lines run until the next tag or the end of the comment.
func briefFrom(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var parts []string
	active := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		if active {
			if strings.Contains(line, "* @") || strings.Contains(line, "*/") {
				break
			}
			text := strings.TrimSpace(strings.Replace(line, "*", "", 1))
			if text == "" {
				break
			}
			parts = append(parts, text)
			continue
		}

		if i := strings.Index(line, "@brief"); i >= 0 {
			if text := strings.TrimSpace(line[i+len("@brief"):]); text != "" {
				parts = append(parts, text)
			}
			active = true
		}
	}

	return strings.Join(parts, " ")
}
