package common

// File permission constants shared by config, credential and snapshot files
const (
	// FilePermissionSecure is used for config and credential files
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for exported metrics and reports
	FilePermissionNormal = 0644

	// DirPermissionSecure is used for ~/.medallion and the credential store
	DirPermissionSecure = 0700

	// DirPermissionNormal is used for output directories
	DirPermissionNormal = 0755
)
