package agentbackend

import "strings"

// ToolSettingPrefix prefixes factory settings that map a task type to the
// tool name an agent exposes: "tool.create_pr" = "create_pull_request".
const ToolSettingPrefix = "tool."

// Tools extracts the task type to tool name map from factory settings.
func Tools(config map[string]string) map[string]string {
	tools := make(map[string]string)
	for k, v := range config {
		if taskType, ok := strings.CutPrefix(k, ToolSettingPrefix); ok && v != "" {
			tools[taskType] = v
		}
	}
	return tools
}

// ToolName returns the tool for taskType. Unmapped task types are called
// under their own name.
func ToolName(tools map[string]string, taskType string) string {
	if tool, ok := tools[taskType]; ok {
		return tool
	}
	return taskType
}
