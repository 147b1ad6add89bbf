// Package workspace manages the isolated per-job directories that hold tool
// inputs, stage logs and generated reports.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/verigrid/questad/internal/domain"
)

var (
	sourceExtensions  = []string{".v", ".sv"}
	includeExtensions = []string{".vh", ".svh"}
)

// Manager creates and tears down job workspaces under a single root.
type Manager struct {
	Root string
}

// Path returns the workspace directory for a job.
func (m *Manager) Path(jobID string) string {
	return filepath.Join(m.Root, jobID)
}

// Create makes the workspace for a job and generates filelist.f from the
// project layout. It returns the workspace path and the include directories
// discovered for the compile search path, in scan order.
func (m *Manager) Create(jobID, projectDir string) (string, []string, error) {
	dir := m.Path(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("creating workspace: %w", err)
	}
	includeDirs, err := generateFilelist(projectDir, dir)
	if err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("generating filelist: %w", err)
	}
	return dir, includeDirs, nil
}

// Remove deletes a job's workspace and everything in it.
func (m *Manager) Remove(jobID string) error {
	return os.RemoveAll(m.Path(jobID))
}

// ListLogs returns metadata for every file in a job's workspace except the
// generated filelist. Stage log files are classified by name.
func (m *Manager) ListLogs(jobID string) ([]domain.LogFile, error) {
	entries, err := os.ReadDir(m.Path(jobID))
	if err != nil {
		return nil, err
	}

	logs := []domain.LogFile{}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "filelist.f" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stage := domain.StageForFilename(entry.Name())
		logs = append(logs, domain.LogFile{
			Filename:    entry.Name(),
			Stage:       stage,
			Size:        info.Size(),
			ModifiedAt:  info.ModTime(),
			Description: stageDescription(stage),
		})
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Filename < logs[j].Filename })
	return logs, nil
}

// ReadLog returns the content of one workspace file. The filename must be a
// bare name; path traversal out of the workspace is rejected.
func (m *Manager) ReadLog(jobID, filename string) ([]byte, error) {
	path, err := SafeJoin(m.Path(jobID), filename)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// SafeJoin joins rel onto root, rejecting anything that would escape root.
func SafeJoin(root, rel string) (string, error) {
	path := filepath.Join(root, rel)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: %s", rel)
	}
	return path, nil
}

func stageDescription(stage domain.LogStage) string {
	switch stage {
	case domain.LogCompile:
		return "vlog compilation output"
	case domain.LogOptimize:
		return "vopt optimization output"
	case domain.LogSimulate:
		return "vsim simulation transcript"
	case domain.LogFormal:
		return "qverify analysis output"
	}
	return ""
}

// generateFilelist writes filelist.f into jobDir from the project's src/,
// tb/ and include/ trees: sources sorted with testbenches after design
// files, all paths relative to the job directory. It returns the include
// directories for the tool search path.
func generateFilelist(projectDir, jobDir string) ([]string, error) {
	srcDir := filepath.Join(projectDir, "src")
	tbDir := filepath.Join(projectDir, "tb")
	incDir := filepath.Join(projectDir, "include")

	srcFiles, err := scanTree(srcDir, sourceExtensions, jobDir)
	if err != nil {
		return nil, err
	}
	tbFiles, err := scanTree(tbDir, sourceExtensions, jobDir)
	if err != nil {
		return nil, err
	}
	sort.Strings(srcFiles)
	sort.Strings(tbFiles)

	var sb strings.Builder
	for _, f := range srcFiles {
		sb.WriteString(f + "\n")
	}
	for _, f := range tbFiles {
		sb.WriteString(f + "\n")
	}
	if err := os.WriteFile(filepath.Join(jobDir, "filelist.f"), []byte(sb.String()), 0644); err != nil {
		return nil, err
	}

	// Include search path: the src root, any src subdirectory holding
	// header files, then the dedicated include tree. Order matters to the
	// tools; duplicates are harmless and kept out by the seen set.
	var includeDirs []string
	seen := map[string]bool{}
	add := func(dir string) {
		rel, err := filepath.Rel(jobDir, dir)
		if err != nil {
			return
		}
		if !seen[rel] {
			seen[rel] = true
			includeDirs = append(includeDirs, rel)
		}
	}

	if dirExists(srcDir) {
		add(srcDir)
		headerDirs, err := dirsWithExtensions(srcDir, includeExtensions)
		if err != nil {
			return nil, err
		}
		for _, d := range headerDirs {
			add(d)
		}
	}
	if dirExists(incDir) {
		add(incDir)
	}

	return includeDirs, nil
}

// scanTree lists files under root with one of the given extensions,
// relative to relativeTo. A missing root yields an empty list.
func scanTree(root string, extensions []string, relativeTo string) ([]string, error) {
	if !dirExists(root) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		for _, ext := range extensions {
			if strings.HasSuffix(d.Name(), ext) {
				rel, err := filepath.Rel(relativeTo, path)
				if err != nil {
					return err
				}
				files = append(files, rel)
				break
			}
		}
		return nil
	})
	return files, err
}

func dirsWithExtensions(root string, extensions []string) ([]string, error) {
	dirs := map[string]bool{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		for _, ext := range extensions {
			if strings.HasSuffix(d.Name(), ext) {
				dirs[filepath.Dir(path)] = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for d := range dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
