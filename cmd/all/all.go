package all

import (
	_ "github.com/sagan/aimeta/cmd/config"
	_ "github.com/sagan/aimeta/cmd/extract"
	_ "github.com/sagan/aimeta/cmd/hash"
	_ "github.com/sagan/aimeta/cmd/index"
	_ "github.com/sagan/aimeta/cmd/jsonschema"
	_ "github.com/sagan/aimeta/cmd/mediainfo"
	_ "github.com/sagan/aimeta/cmd/parsetext"
	_ "github.com/sagan/aimeta/cmd/resolve"
)
