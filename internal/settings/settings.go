package settings

import "fmt"

const (
	CmdName = "instrument"
	LibName = "libinstrument"

	VersionMajor = 1
	VersionMinor = 0
)

var Version = fmt.Sprintf("%d.%d", VersionMajor, VersionMinor)
