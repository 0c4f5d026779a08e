// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeutil

import (
	"maps"
	"slices"
)

// Set 是基于 map 的集合，不是并发安全的。
type Set[T comparable] map[T]struct{}

func NewSet[T comparable](elements ...T) Set[T] {
	set := make(Set[T], len(elements))
	set.Insert(elements...)
	return set
}

// Insert 插入元素，已存在的元素被忽略。
func (set Set[T]) Insert(elements ...T) {
	for _, elem := range elements {
		set[elem] = struct{}{}
	}
}

// Contain 判断所有给定元素是否都在集合中。
func (set Set[T]) Contain(elements ...T) bool {
	for _, elem := range elements {
		if _, ok := set[elem]; !ok {
			return false
		}
	}
	return true
}

func (set Set[T]) Remove(elements ...T) {
	for _, elem := range elements {
		delete(set, elem)
	}
}

func (set Set[T]) Len() int {
	return len(set)
}

// Collect 以任意顺序返回所有元素。
func (set Set[T]) Collect() []T {
	return slices.Collect(maps.Keys(set))
}

// Sorted 返回按 cmp 排序的元素，用于需要稳定顺序的场景（如批量解析类型）。
func (set Set[T]) Sorted(cmp func(a, b T) int) []T {
	return slices.SortedFunc(maps.Keys(set), cmp)
}

func (set Set[T]) Clone() Set[T] {
	if set == nil {
		return NewSet[T]()
	}
	return maps.Clone(set)
}

// Union 返回包含两个集合全部元素的新集合。
func (set Set[T]) Union(other Set[T]) Set[T] {
	ret := set.Clone()
	maps.Copy(ret, other)
	return ret
}
