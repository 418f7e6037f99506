// Package checkpoint saves the collected article catalog so an export can
// resume after a rate-limit stop without paging through the account again.
//
// A checkpoint records the account's fakeid, the date window it was
// collected for, every article gathered so far and the listing offset to
// continue from. It is only reused when both the fakeid and the window
// match the new run.
//
// Checkpoints are stored in platform-specific data directories unless a
// directory is configured:
//   - Linux: ~/.local/share/wxexport/checkpoints/
//   - macOS: ~/Library/Application Support/wxexport/checkpoints/
//   - Windows: %APPDATA%/wxexport/checkpoints/
package checkpoint
