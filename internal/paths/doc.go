// Provides platform-appropriate paths for cruxbuild.
//
// Paths follow XDG conventions on Linux and platform-native conventions on
// macOS. The tool name "cruxbuild" is used as the subdirectory under each
// base path. Every path here is a default; configuration may override it.
package paths
