// Package timeline 把完整的注册表元数据投影到某个截止时间点的视图。
//
// 这里的函数都是纯函数：不做 I/O，不持有共享状态，可以在任意并发下调用。
// npm/yarn 使用 RegistryDocument（versions/time/dist-tags），pip 使用
// PEP 691 simple index（files/versions）。
package timeline
