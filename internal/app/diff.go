package app

import (
	"log"

	"swissdamed/internal/diff"
)

// diffKey is the column rows are matched on.
const diffKey = "udiDiCode"

// Diff compares two CSV artifacts and writes the report to the diff
// directory. It returns the report path, or "" when nothing changed.
func (a *App) Diff(oldPath, newPath string) (string, *diff.Result, error) {
	res, err := diff.Files(oldPath, newPath, diffKey)
	if err != nil {
		return "", nil, err
	}
	if res.Empty() {
		log.Printf("No differences found.")
		return "", res, nil
	}

	out := diff.OutputPath(a.cfg.DiffDir, a.cfg.Prefix, oldPath, newPath)
	if err := res.WriteFile(out); err != nil {
		return "", res, err
	}
	log.Printf("diff: %d added, %d removed, %d changed", res.Added, res.Removed, res.Changed)
	log.Printf("diff: written to %s", out)
	return out, res, nil
}
