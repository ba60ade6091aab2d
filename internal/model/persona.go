package model

import "strings"

// UsernamePlaceholder 在人格模板中代表发起请求的用户显示名。
const UsernamePlaceholder = "{username}"

// Persona 是一个命名的系统提示模板，启动时加载，运行期只读。
type Persona struct {
	Name                 string `yaml:"name" json:"name"`
	SystemPromptTemplate string `yaml:"prompt" json:"prompt"`
}

// Render 用请求者的显示名替换模板中的占位符。
func (p Persona) Render(displayName string) string {
	return strings.ReplaceAll(p.SystemPromptTemplate, UsernamePlaceholder, displayName)
}
