// Package trigger 进程内截止触发服务
//
// 单个 goroutine 持有按触发时刻排序的小顶堆，每次休眠不超过 max-sleep-cap，
// 墙上时钟跳变（NTP 校时、主机挂起）最多延迟一个 cap 周期被发现。
//
// 每个 handle 至多投递一次。取消已触发或从未安排的 handle 为空操作。
package trigger
