package artifacts

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/EffortlessMetrics/buildfix/pkg/shared/files"
)

// Artifact file names inside the output directory.
const (
	PlanFile   = "plan.json"
	PatchFile  = "patch.diff"
	ApplyFile  = "apply.json"
	ReportFile = "report.json"
	SarifFile  = "plan.sarif"
)

// SaveJSON marshals v and writes it to <dir>/<name>. Returns the full path.
func SaveJSON(logger hclog.Logger, dir, name string, v interface{}) (string, error) {
	if err := files.CreateFolderIfNotExists(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return path, fmt.Errorf("error marshaling the result data: %w", err)
	}
	data = append(data, '\n')

	if err := files.WriteJsonFile(path, data); err != nil {
		return path, fmt.Errorf("error writing result to file: %w", err)
	}
	logger.Info("artifact saved to file", "path", path)

	return path, nil
}

// SaveRaw writes raw bytes to <dir>/<name>. Returns the full path.
func SaveRaw(logger hclog.Logger, dir, name string, data []byte) (string, error) {
	if err := files.CreateFolderIfNotExists(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)

	if err := files.WriteJsonFile(path, data); err != nil {
		return path, fmt.Errorf("error writing %q: %w", path, err)
	}
	logger.Info("artifact saved to file", "path", path)

	return path, nil
}
