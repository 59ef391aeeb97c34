package peephole

// Optimize runs every rule over the assembly text, repeating the whole set
// until a complete sweep changes nothing. Every rule only removes or
// shrinks code, so the loop terminates.
func Optimize(src string) string {
	lines := Parse(src)
	for {
		changed := false
		for _, r := range rules {
			var c bool
			lines, c = r(lines)
			changed = changed || c
		}
		if !changed {
			return Render(lines)
		}
	}
}
