/*
Package plugin holds the name → factory registry the config loader resolves
actors through.

Every plugin registers a triple under a unique name: a typed config
prototype, a typed entity prototype, and an actor constructor. Registration
happens in the plugin package's init function; the CLI's blank imports of the
plugin packages are the load phase. Looking up an unknown name produces an
error enumerating the registered names.
*/
package plugin
