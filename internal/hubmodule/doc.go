// Package hubmodule 聚合 npm/yarn/pip 等生态模块，并提供统一的注册入口。
//
// 模块作者需要：
//  1. 在 internal/hubmodule/<module-key>/ 目录下实现 identifier 分类、上游路径与文档过滤；
//  2. 在 init() 中通过本包的 MustRegister 注册模块元数据，通过 hooks.MustRegister 注册钩子；
//  3. 在 main 中以空白导入启用模块。
package hubmodule
