package version

// Set by -ldflags "-X github.com/sagan/aimeta/version.Version=..." at release build.
var Version = "dev"
