package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"aiko-go/internal/model"
	"aiko-go/internal/repository"
	"aiko-go/pkg/log"

	"gopkg.in/yaml.v3"
)

// PersonaService 管理人格模板以及每个会话当前选择的人格。
type PersonaService interface {
	// Resolve 返回会话当前的人格；未分配或分配的名称已不存在时返回 false。
	Resolve(key model.ConversationKey) (model.Persona, bool)
	// Assign 为会话设置或覆盖人格，名称必须存在于已加载的人格中。
	Assign(ctx context.Context, key model.ConversationKey, name string) error
	// Unassign 移除会话的人格分配，不存在时什么也不做。
	Unassign(ctx context.Context, key model.ConversationKey) error
	// Names 返回按字母排序的人格名称。
	Names() []string
	// Load 从持久化存储恢复人格分配。
	Load(ctx context.Context) error
}

type personaService struct {
	personas map[string]model.Persona
	store    repository.AssignmentStore

	mu          sync.RWMutex
	assignments map[model.ConversationKey]string
}

// NewPersonaService 创建一个新的 PersonaService。personas 在运行期只读。
func NewPersonaService(personas map[string]model.Persona, store repository.AssignmentStore) PersonaService {
	if store == nil {
		store = repository.NewMemoryAssignmentStore()
	}
	copied := make(map[string]model.Persona, len(personas))
	for name, p := range personas {
		copied[name] = p
	}
	return &personaService{
		personas:    copied,
		store:       store,
		assignments: make(map[model.ConversationKey]string),
	}
}

func (s *personaService) Resolve(key model.ConversationKey) (model.Persona, bool) {
	s.mu.RLock()
	name, ok := s.assignments[key]
	s.mu.RUnlock()
	if !ok {
		return model.Persona{}, false
	}
	p, ok := s.personas[name]
	return p, ok
}

func (s *personaService) Assign(ctx context.Context, key model.ConversationKey, name string) error {
	if _, ok := s.personas[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPersona, name)
	}

	s.mu.Lock()
	s.assignments[key] = name
	s.mu.Unlock()

	if err := s.store.Save(ctx, key, name); err != nil {
		// 内存中的分配已生效，只是重启后会丢失
		log.Errorf("保存人格分配失败: key=%s, persona=%s, err=%v", key, name, err)
	}
	return nil
}

func (s *personaService) Unassign(ctx context.Context, key model.ConversationKey) error {
	s.mu.Lock()
	_, ok := s.assignments[key]
	delete(s.assignments, key)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete persona assignment: %w", err)
	}
	return nil
}

func (s *personaService) Names() []string {
	names := make([]string, 0, len(s.personas))
	for name := range s.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *personaService) Load(ctx context.Context) error {
	loaded, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, name := range loaded {
		if _, ok := s.personas[name]; !ok {
			log.Warnf("忽略已不存在的人格分配: key=%s, persona=%s", key, name)
			continue
		}
		s.assignments[key] = name
	}
	log.Infof("已恢复 %d 个会话的人格分配", len(s.assignments))
	return nil
}

type personalitiesFile struct {
	Personalities map[string]string `yaml:"personalities"`
}

// LoadPersonas 从配置文件的 personalities 段以及可选的人格文件中读取人格模板。
// 这里直接用 yaml.v3 解析，因为 viper 会把 map 的键转成小写，而人格名称需要保留大小写。
// 人格文件既可以带 personalities 段，也可以是名称到模板的顶层映射；同名时人格文件优先。
func LoadPersonas(paths ...string) (map[string]model.Persona, error) {
	personas := make(map[string]model.Persona)
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("人格文件不存在，跳过: %s", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read personas from %s: %w", path, err)
		}
		templates, err := parsePersonas(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse personas from %s: %w", path, err)
		}
		for name, tmpl := range templates {
			personas[name] = model.Persona{Name: name, SystemPromptTemplate: tmpl}
		}
	}
	return personas, nil
}

func parsePersonas(data []byte) (map[string]string, error) {
	var wrapped personalitiesFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Personalities) > 0 {
		return wrapped.Personalities, nil
	}
	// 主配置文件里没有 personalities 段时，顶层映射并非全是字符串，这不算错误
	var flat map[string]interface{}
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if _, isConfig := flat["personalities"]; isConfig {
		return out, nil
	}
	for name, v := range flat {
		if tmpl, ok := v.(string); ok {
			out[name] = tmpl
		}
	}
	return out, nil
}
