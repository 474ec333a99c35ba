package config

// registryDefault 记录内置生态的默认上游与环境变量覆盖名。
type registryDefault struct {
	Name     string
	Upstream string
	EnvVar   string
}

// builtinRegistries 的顺序即注册表补全与日志输出的顺序。
var builtinRegistries = []registryDefault{
	{Name: "npm", Upstream: "http://registry.npmjs.org/", EnvVar: "NPM_REGISTRY_URL"},
	{Name: "yarn", Upstream: "http://registry.yarnpkg.com/", EnvVar: "YARN_REGISTRY_URL"},
	{Name: "pip", Upstream: "https://pypi.org/simple/", EnvVar: "PIP_INDEX_URL"},
}

const supportedRegistryList = "npm|yarn|pip"

func lookupBuiltin(name string) (registryDefault, bool) {
	for _, def := range builtinRegistries {
		if def.Name == name {
			return def, true
		}
	}
	return registryDefault{}, false
}
