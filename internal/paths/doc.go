// Provides platform-appropriate paths for configurations, build trees, status
// files, and logs.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows. Paths that depend on a configuration are keyed by the
// configuration name, so several configurations can coexist on one host.
package paths
