// Package sdk defines the contract between the castbot host and its plugins.
// It is designed to be imported by out-of-tree plugins (including shared
// libraries built with -buildmode=plugin) without pulling in host internals.
package sdk

// ABIVersion is the plugin binary interface version. Native shared-library
// plugins must export a matching `ABIVersion uint32` symbol; the loader
// rejects artifacts built against a different version instead of crashing.
const ABIVersion uint32 = 1

// NewPluginSymbol is the constructor symbol a native shared library must export.
// Its signature must be `func() sdk.Plugin`.
const NewPluginSymbol = "NewPlugin"

// ABIVersionSymbol is the version symbol a native shared library must export.
const ABIVersionSymbol = "ABIVersion"
