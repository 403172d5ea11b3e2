package main

import "github.com/ghfetch/ghfetch/internal/update"

const version = "v1.4.0"

// versionStamp is the release marker line. Every published copy of ghfetch,
// binary or script, carries this exact line; the self-updater parses its
// third field on both sides of a version comparison.
const versionStamp = update.VersionMarker + " version " + version
