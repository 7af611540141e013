// Package plugins defines the cloud plugin SPI: the per-resource-type
// operations a cloud adapter must implement, the instance snapshot those
// operations return, the credential mapper, and an explicit registry that
// resolves a plugin from a cloud name and resource type. Plugins are
// registered at startup from configuration; there is no dynamic loading.
package plugins
