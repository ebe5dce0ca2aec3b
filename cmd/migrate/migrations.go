package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// parseFilename splits "0001_pending_trades.up.sql" into its version, name
// and direction.
func parseFilename(p string) (int64, string, string, error) {
	base := strings.TrimSuffix(path.Base(p), ".sql")
	dot := strings.LastIndexByte(base, '.')
	under := strings.IndexByte(base, '_')
	if dot < 0 || under <= 0 || under > dot {
		return 0, "", "", fmt.Errorf("invalid migration filename: %s", p)
	}
	direction := base[dot+1:]
	if direction != "up" && direction != "down" {
		return 0, "", "", fmt.Errorf("invalid migration filename: %s", p)
	}
	version, err := strconv.ParseInt(base[:under], 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("invalid migration filename: %s", p)
	}
	name := base[under+1 : dot]
	if name == "" {
		return 0, "", "", fmt.Errorf("invalid migration filename: %s", p)
	}
	return version, name, direction, nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	paths, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no migration files found")
	}

	index := make(map[int64]*migration)
	for _, p := range paths {
		version, name, direction, err := parseFilename(p)
		if err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("empty migration file: %s", p)
		}

		m := index[version]
		if m == nil {
			m = &migration{Version: version, Name: name}
			index[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("conflicting names for version %d: %s vs %s", version, m.Name, name)
		}
		target := &m.UpSQL
		if direction == "down" {
			target = &m.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}

	out := make([]migration, 0, len(index))
	for _, m := range index {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration version %d must include both up and down files", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// pendingUp returns the migrations not yet applied, oldest first.
func pendingUp(all []migration, applied map[int64]struct{}) []migration {
	var out []migration
	for _, m := range all {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// rollbackPlan picks the newest applied versions to undo, newest first.
func rollbackPlan(all []migration, applied map[int64]struct{}, steps int) ([]migration, error) {
	byVersion := make(map[int64]migration, len(all))
	for _, m := range all {
		byVersion[m.Version] = m
	}
	versions := make([]int64, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if steps < len(versions) {
		versions = versions[:steps]
	}

	out := make([]migration, 0, len(versions))
	for _, v := range versions {
		m, ok := byVersion[v]
		if !ok {
			return nil, fmt.Errorf("no migration source for applied version %d", v)
		}
		out = append(out, m)
	}
	return out, nil
}
