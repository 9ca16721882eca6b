package security

import "regexp"

type pattern struct {
	description string
	re          *regexp.Regexp
	severity    Severity
}

// catalogue is the fixed pattern set. Built once at package init, never
// mutated.
var catalogue = []pattern{
	{
		description: "Fork bomb",
		re:          regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:|while\s*\(?\s*true\s*\)?\s*[{;].*fork`),
		severity:    Critical,
	},
	{
		description: "Network scanner",
		re:          regexp.MustCompile(`(?i)\b(nmap|masscan|zmap)\b`),
		severity:    Critical,
	},
	{
		description: "Mining software",
		re:          regexp.MustCompile(`(?i)\b(xmrig|ethminer|cgminer|bfgminer|cryptonight)\b`),
		severity:    Critical,
	},
	{
		description: "Reverse shell",
		re:          regexp.MustCompile(`/bin/(bash|sh)\s+-i|nc\s+.*-e\s+/bin/(bash|sh)|bash\s+-i\s*>&\s*/dev/tcp`),
		severity:    Critical,
	},
	{
		description: "Destructive filesystem operation",
		re:          regexp.MustCompile(`rm\s+-rf\s+/(\s|$)|dd\s+if=/dev/(zero|random)\s+of=/dev/`),
		severity:    High,
	},
	{
		description: "SQL injection literal",
		re:          regexp.MustCompile(`(?i)union\s+(all\s+)?select|drop\s+table|delete\s+from\s+\w+\s+where\s+1\s*=\s*1`),
		severity:    Medium,
	},
	{
		description: "Infinite loop",
		re:          regexp.MustCompile(`while\s*\(\s*1\s*\)|while\s+True\s*:|for\s*\(\s*;\s*;\s*\)`),
		severity:    Medium,
	},
}

// languageSymbols are the warn-only dangerous-symbol lists, keyed by
// PascalCase language name.
var languageSymbols = map[string][]string{
	"Python": {
		"os.system", "subprocess.Popen", "eval(", "exec(", "__import__",
		"compile(", "globals(", "locals(",
	},
	"Node": {
		"child_process", "eval(", "Function(", "require('vm')",
	},
	"Rust": {
		"std::process::Command", "unsafe {",
	},
	"Go": {
		"exec.Command", "syscall.",
	},
	"Ruby": {
		"system(", "exec(", "eval(", "`", "Kernel.eval",
	},
}

// suspiciousDependencyNames match dependency names case-insensitively
// as substrings.
var suspiciousDependencyNames = []string{
	"miner", "mining", "crypto", "xmr", "monero", "botnet", "exploit",
	"payload", "backdoor", "keylog", "stealer", "ransomware",
}
