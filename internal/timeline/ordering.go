package timeline

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareVersions 给出版本号之间的全序关系。
// 无法解析的版本视为最低值，两个都无法解析时按字符串比较。
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	if cmp := va.Compare(vb); cmp != 0 {
		return cmp
	}
	// 1.0 与 1.0.0 在 semver 下相等，这里退回字符串比较保证结果稳定
	return strings.Compare(a, b)
}

// Latest 返回集合中排序最大的版本，集合为空时返回空字符串。
func Latest(versions []string) string {
	var best string
	for i, v := range versions {
		if i == 0 || CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return best
}
