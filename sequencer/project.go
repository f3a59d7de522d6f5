package sequencer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go-drum/debug"
	"go-drum/pattern"
)

const saveStamp = "2006-01-02_15-04-05"

// SaveInfo represents a saved pattern file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// ProjectsDir returns the projects directory path
func ProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-drum", "projects"), nil
}

// ProjectDir returns the path to a specific project
func ProjectDir(projectName string) (string, error) {
	base, err := ProjectsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, projectName), nil
}

// ListProjects returns all project folder names
func ListProjects() ([]string, error) {
	dir, err := ProjectsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}

	sort.Strings(projects)
	return projects, nil
}

// ListSaves returns timestamped saves for a project, newest first
func ListSaves(projectName string) ([]SaveInfo, error) {
	dir, err := ProjectDir(projectName)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		// 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.yaml
		baseName := strings.TrimSuffix(name, ext)
		if len(baseName) < len(saveStamp) {
			continue
		}
		ts, err := time.Parse(saveStamp, baseName[:len(saveStamp)])
		if err != nil {
			continue
		}

		saveName := ""
		if len(baseName) > len(saveStamp)+1 && baseName[len(saveStamp)] == '_' {
			saveName = baseName[len(saveStamp)+1:]
		}

		saves = append(saves, SaveInfo{
			Filename:  name,
			Name:      saveName,
			Timestamp: ts,
		})
	}

	// newest first; same-second saves by filename
	sort.Slice(saves, func(i, j int) bool {
		if !saves[i].Timestamp.Equal(saves[j].Timestamp) {
			return saves[i].Timestamp.After(saves[j].Timestamp)
		}
		return saves[i].Filename > saves[j].Filename
	})

	return saves, nil
}

// SaveProject writes the transport's pattern and tempo as a new timestamped
// save and returns its path. label is optional; format is by extension
// ("json" or "yaml").
func SaveProject(projectName, label, format string, tr *Transport) (string, error) {
	if projectName == "" {
		projectName = "untitled"
	}
	if format == "" {
		format = "json"
	}

	dir, err := ProjectDir(projectName)
	if err != nil {
		return "", err
	}

	filename := time.Now().Format(saveStamp)
	if label != "" {
		filename += "_" + sanitizeFilename(label)
	}
	path := filepath.Join(dir, filename+"."+format)

	snap := tr.Observe()
	if err := pattern.WriteFile(path, pattern.RecordOf(snap.Pattern, snap.TempoBPM)); err != nil {
		return "", err
	}
	debug.Log("project", "saved %s", path)
	return path, nil
}

// LoadProject reads a specific save, or the most recent if filename is empty.
func LoadProject(projectName, filename string) (pattern.Record, error) {
	dir, err := ProjectDir(projectName)
	if err != nil {
		return pattern.Record{}, err
	}

	if filename == "" {
		saves, err := ListSaves(projectName)
		if err != nil || len(saves) == 0 {
			return pattern.Record{}, fmt.Errorf("no saves found in project %s", projectName)
		}
		filename = saves[0].Filename // saves are sorted newest first
	}

	return pattern.ReadFile(filepath.Join(dir, filename))
}

// Apply loads a record's pattern and, if it has one, its tempo.
func (t *Transport) Apply(rec pattern.Record) error {
	p, err := rec.ToPattern()
	if err != nil {
		return err
	}
	if rec.TempoBPM != 0 {
		if err := t.SetTempo(rec.TempoBPM); err != nil {
			return err
		}
	}
	return t.LoadPattern(p)
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	r := strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	)
	return r.Replace(name)
}
