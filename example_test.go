package statemap_test

import (
	"fmt"

	"github.com/jilio/statemap"
)

func Example() {
	m := statemap.New[string]()
	m.Insert(statemap.TypePowerLevels, "", "$pl")
	m.Insert(statemap.TypeMembership, "@alice:example.org", "$alice")
	m.Insert("org.example.custom", "k", "$custom")

	id, _ := m.Get(statemap.TypePowerLevels, "")
	fmt.Println(id, m.Len())
	fmt.Println(statemap.Classify("org.example.custom", "k"))
	// Output:
	// $pl 3
	// others
}

func ExampleAddOrRemove() {
	m := statemap.New[string]()
	m.Insert(statemap.TypeTopic, "", "$a")

	_, conflict := statemap.AddOrRemove(m, statemap.TypeTopic, "", "$a")
	fmt.Println(conflict)

	prev, conflict := statemap.AddOrRemove(m, statemap.TypeTopic, "", "$b")
	fmt.Println(prev, conflict, m.ContainsKey(statemap.TypeTopic, ""))
	// Output:
	// false
	// $a true false
}

func ExampleStateMap_GetMutOrDefault() {
	counts := statemap.New[int]()
	for _, user := range []string{"@a:x", "@b:x", "@a:x"} {
		counts.GetMutOrDefault(statemap.TypeMembership, user).Update(func(n *int) { *n++ })
	}
	n, _ := counts.GetMembership("@a:x")
	fmt.Println(n)
	// Output: 2
}
