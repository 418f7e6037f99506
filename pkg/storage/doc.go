// Package storage manages the export directory.
//
// Artifacts live at {root}/{HTML|PDF|Word}/{date}_{title}.{ext}. The
// Manager keeps no index: whether a file exists at its path decides
// whether that format is already done, so re-running an export is safe.
//
// Writes go through a temporary file in the target directory followed by
// a rename, so a crashed run never leaves a truncated artifact that would
// later be mistaken for a finished one.
//
//	m, err := storage.NewManager(root)
//	path := m.Path(ref, models.FormatHTML)
//	if !m.Exists(path) {
//	    err = m.WriteFile(path, []byte(sanitized.HTML))
//	}
package storage
