package ui

import _ "embed"

// Tray icon, 16x16 PNG. Linux and Windows take PNG bytes directly;
// macOS converts on load.
//
//go:embed icon.png
var iconBytes []byte
