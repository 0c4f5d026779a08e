package registry

import (
	"os"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// SupportedSchemaVersion 是当前支持的描述文件版本，主版本号不同则拒绝加载。
const SupportedSchemaVersion = "1.0.0"

var supportedSchemaVersion = semver.MustParse(SupportedSchemaVersion)

// TypeDefinition 是一个类型的构造器与字段规则。
// 按查找键加载的定义可以没有 Name，解码时实例的标签总是取自文档中的 @type。
type TypeDefinition struct {
	Name   string
	Fields graphjson.FieldTypeDescriptor
	// New 为空时使用 graphjson.Record。
	New graphjson.Constructor
}

// Constructor 返回该类型的构造器。
func (d *TypeDefinition) Constructor() graphjson.Constructor {
	if d.New != nil {
		return d.New
	}
	return graphjson.NewRecordConstructor(graphjson.TypeTag(d.Name))
}

// schemaDocument 是类型描述文件的结构：
//
//	apiVersion: 1.0.0
//	types:
//	  - name: as.dto.sample.Sample
//	    fields:
//	      code: Scalar
//	      project: as.dto.project.Project
//	      children: List<as.dto.sample.Sample>
//	      permId: {type: as.dto.sample.id.SamplePermId, alias: _permId}
type schemaDocument struct {
	APIVersion string       `yaml:"apiVersion"`
	Types      []schemaType `yaml:"types"`
}

type schemaType struct {
	APIVersion string                 `yaml:"apiVersion,omitempty"`
	Name       string                 `yaml:"name"`
	Fields     map[string]schemaField `yaml:"fields"`
}

// schemaField 既可以写成规则表达式，也可以写成 {type, alias}。
type schemaField struct {
	Type  string `yaml:"type"`
	Alias string `yaml:"alias"`
}

func (f *schemaField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&f.Type)
	}
	type plain schemaField
	return node.Decode((*plain)(f))
}

func checkSchemaVersion(version string) error {
	if version == "" {
		return merr.WrapErrSchemaInvalid("missing apiVersion")
	}
	got, err := semver.ParseTolerant(version)
	if err != nil {
		return merr.WrapErrSchemaInvalid("invalid apiVersion", version)
	}
	if got.Major != supportedSchemaVersion.Major {
		return merr.WrapErrSchemaVersionMismatch(version, SupportedSchemaVersion)
	}
	return nil
}

// definition 构造类型定义，label 只用于错误信息。
func (t schemaType) definition(label string) (*TypeDefinition, error) {
	fields := make(graphjson.FieldTypeDescriptor, len(t.Fields))
	for wire, f := range t.Fields {
		if f.Type == "" {
			return nil, merr.WrapErrSchemaInvalid("field without type", label+"."+wire)
		}
		ft, err := graphjson.ParseFieldType(f.Type)
		if err != nil {
			return nil, merr.WrapErrSchemaInvalid("bad field type", label+"."+wire, err.Error())
		}
		if f.Alias != "" {
			ft = ft.WithAlias(f.Alias)
		}
		fields[wire] = ft
	}
	return &TypeDefinition{Name: t.Name, Fields: fields}, nil
}

// ParseSchema 解析类型描述文件，YAML 与 JSON 均可。
func ParseSchema(data []byte) ([]*TypeDefinition, error) {
	var doc schemaDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, merr.WrapErrSchemaInvalid("unparsable schema", err.Error())
	}
	if err := checkSchemaVersion(doc.APIVersion); err != nil {
		return nil, err
	}
	defs := make([]*TypeDefinition, 0, len(doc.Types))
	seen := make(map[string]struct{}, len(doc.Types))
	for _, t := range doc.Types {
		if t.Name == "" {
			return nil, merr.WrapErrSchemaInvalid("type without name")
		}
		def, err := t.definition(t.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[def.Name]; dup {
			return nil, merr.WrapErrTypeAlreadyRegistered(def.Name)
		}
		seen[def.Name] = struct{}{}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadSchemaFile 读取并解析类型描述文件。
func LoadSchemaFile(path string) ([]*TypeDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema file %s", path)
	}
	return ParseSchema(data)
}

// ParseTypeDefinition 解析单个类型定义 {apiVersion?, name?, fields}，用于按键存放的定义。
// key 是存放该定义的查找键，只用于错误信息，不会成为类型名。
func ParseTypeDefinition(key string, data []byte) (*TypeDefinition, error) {
	var t schemaType
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, merr.WrapErrSchemaInvalid("unparsable type definition", err.Error())
	}
	if t.APIVersion != "" {
		if err := checkSchemaVersion(t.APIVersion); err != nil {
			return nil, err
		}
	}
	label := t.Name
	if label == "" {
		label = key
	}
	return t.definition(label)
}
