package config

// MountOptions holds high-level settings for mounting.
// No go-fuse or cgofuse types are exposed here.
type MountOptions struct {
	Debug  bool   // bridge debug logs
	FsName string // mount's FsName; also reported as the volume's filesystem name
	Name   string // mount's Name
}
