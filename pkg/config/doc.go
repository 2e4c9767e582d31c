/*
Package config loads the declarative stack document and owns the
constants that tie the stack together: internal container ports, compose
container names, API prefixes, and the converge dependency order.

Absent fields in the YAML document take their defaults, so a minimal
document only needs the three host roots:

	version: 1
	paths:
	  pool: /mnt/pool
	  appdata: /mnt/pool/appdata

The package also provides the path Translator. The orchestrator may run
on the host or inside a container with fixed bind mounts (/appdata,
/data, /scratch, optionally /host); the Translator rewrites host paths
from the document into whichever form the process can actually reach.
*/
package config
