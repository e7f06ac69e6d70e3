package sandbox

// DefaultImage is the container image used for the shell tool's sandboxed
// executor when no override is configured. The Conversation Core has no
// notion of a project type to pick an image by (that was a coding-agent
// concern of the teacher repo); a single general-purpose image is enough
// for an illustrative shell tool (spec.md §4.11, §1 "filesystem/shell tool
// implementations" are named external collaborators, not core scope).
const DefaultImage = "alpine:3.19"

// GetDockerImage returns the image to run the shell tool's container with:
// config.DockerImage if set, else DefaultImage.
func GetDockerImage(config Config) string {
	if config.DockerImage != "" {
		return config.DockerImage
	}
	return DefaultImage
}
