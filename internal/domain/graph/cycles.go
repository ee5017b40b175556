// Package graph 對策略組之間的引用關係做環檢測。
package graph

import (
	"slices"
)

// Group 策略組及其成員
type Group struct {
	Name    string
	Members []string
}

// FindCycles 在策略組 -> 策略組的引用圖上查找環
//
// 指向普通代理的邊不參與；從每個未訪問的節點按輸入順序做 DFS，
// 遇到仍在調用棧上的節點時，把棧上從該節點到當前節點的路徑（首尾相同）記為一個環。
func FindCycles(groups []Group) [][]string {
	edges := make(map[string][]string, len(groups))
	order := make([]string, 0, len(groups))
	for _, g := range groups {
		if _, seen := edges[g.Name]; seen {
			continue
		}
		edges[g.Name] = nil
		order = append(order, g.Name)
	}
	for _, g := range groups {
		for _, m := range g.Members {
			if _, isGroup := edges[m]; isGroup && !slices.Contains(edges[g.Name], m) {
				edges[g.Name] = append(edges[g.Name], m)
			}
		}
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(order))

	type frame struct {
		node string
		next int
	}

	var cycles [][]string
	for _, start := range order {
		if state[start] != unvisited {
			continue
		}

		stack := []frame{{node: start}}
		path := []string{start}
		state[start] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := edges[top.node]
			if top.next >= len(children) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}

			child := children[top.next]
			top.next++

			switch state[child] {
			case unvisited:
				state[child] = onStack
				stack = append(stack, frame{node: child})
				path = append(path, child)
			case onStack:
				i := slices.Index(path, child)
				cycle := slices.Clone(path[i:])
				cycles = append(cycles, append(cycle, child))
			}
		}
	}
	return cycles
}
