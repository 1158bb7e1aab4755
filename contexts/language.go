package contexts

import "strings"

// Normalize maps a requested language to its kernel family. The JS-family
// aliases share one kernel type: "js", "ts", and "typescript" all run on the
// javascript kernel. Unknown languages pass through lowercased.
func Normalize(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "js", "ts", "typescript", "javascript":
		return "javascript"
	case "py", "python":
		return "python"
	case "r":
		return "r"
	case "sh", "bash":
		return "bash"
	default:
		return strings.ToLower(strings.TrimSpace(language))
	}
}

// kernelSpec returns the gateway kernelspec name for a normalized language.
func kernelSpec(normalized string) string {
	switch normalized {
	case "python":
		return "python3"
	case "r":
		return "ir"
	default:
		return normalized
	}
}

// CwdStatement returns the language's native working-directory statement, or
// the empty string for languages with no known statement (those are left at
// the gateway's default directory).
func CwdStatement(language, cwd string) string {
	quoted := strings.ReplaceAll(cwd, `'`, `\'`)
	switch Normalize(language) {
	case "python":
		return "import os\nos.chdir('" + quoted + "')"
	case "javascript":
		return "process.chdir('" + quoted + "')"
	case "r":
		return "setwd('" + quoted + "')"
	case "bash":
		return "cd '" + quoted + "'"
	default:
		return ""
	}
}
