/*
Package health provides readiness probes for the managed containers.

Three checker types cover the stack's services: TCP (port accepting
connections, the default during converge), HTTP (endpoint answering with
any non-5xx status, since services behind first-run wizards redirect and
challenge long before they return 200), and Exec (a command exiting 0,
used to probe containers through the docker CLI).

WaitFor wraps any checker in the converge readiness loop: a three minute
deadline probed every three seconds, returning the last failure message
on timeout so the apply run can report what the service was stuck on.
*/
package health
